package dml

import "github.com/birdie-ai/mung/value"

// Command is a validated command ready for execution.
// The set of commands is closed: [Find], [Count], [Distinct], [Insert], [Update] and [Remove].
type Command interface {
	// Verb is the name of the command verb, like "find".
	Verb() string
	// CollectionName is the collection the command operates on.
	CollectionName() string
	command()
}

type (
	// Find queries documents.
	Find struct {
		Collection string
		Filter     value.Object
		Projection *value.Object
		Sort       *value.Object
		Limit      *uint64
		Skip       *uint64
		BatchSize  *uint64
	}

	// Count counts the documents matching the filter.
	Count struct {
		Collection string
		Filter     value.Object
	}

	// Distinct lists the distinct values of a field among the documents matching the filter.
	Distinct struct {
		Collection string
		Field      string
		Filter     value.Object
	}

	// Insert inserts documents. A single document is normalized to a one element slice.
	Insert struct {
		Collection string
		Docs       []value.Object
	}

	// Update updates the documents matching the filter.
	// Without Multi at most one document is updated.
	Update struct {
		Collection string
		Filter     value.Object
		Update     value.Object
		Multi      bool
		Upsert     bool
	}

	// Remove removes all documents matching the filter.
	Remove struct {
		Collection string
		Filter     value.Object
	}
)

// Verbs.
const (
	VerbFind     = "find"
	VerbCount    = "count"
	VerbDistinct = "distinct"
	VerbInsert   = "insert"
	VerbUpdate   = "update"
	VerbRemove   = "remove"
)

// Modifiers, only valid after [VerbFind].
const (
	ModSort      = "sort"
	ModLimit     = "limit"
	ModSkip      = "skip"
	ModBatchSize = "batchSize"
)

func (Find) Verb() string     { return VerbFind }
func (Count) Verb() string    { return VerbCount }
func (Distinct) Verb() string { return VerbDistinct }
func (Insert) Verb() string   { return VerbInsert }
func (Update) Verb() string   { return VerbUpdate }
func (Remove) Verb() string   { return VerbRemove }

func (c Find) CollectionName() string     { return c.Collection }
func (c Count) CollectionName() string    { return c.Collection }
func (c Distinct) CollectionName() string { return c.Collection }
func (c Insert) CollectionName() string   { return c.Collection }
func (c Update) CollectionName() string   { return c.Collection }
func (c Remove) CollectionName() string   { return c.Collection }

func (Find) command()     {}
func (Count) command()    {}
func (Distinct) command() {}
func (Insert) command()   {}
func (Update) command()   {}
func (Remove) command()   {}

// IsWrite reports if the command modifies the collection.
func IsWrite(cmd Command) bool {
	switch cmd.(type) {
	case Insert, Update, Remove:
		return true
	}
	return false
}
