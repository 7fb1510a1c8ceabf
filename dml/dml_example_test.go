package dml_test

import (
	"fmt"
	"os"
	"strings"

	"github.com/birdie-ai/mung/dml"
)

func ExampleEncode() {
	limit := uint64(2)
	cmd := dml.Find{
		Collection: "users",
		Limit:      &limit,
	}
	err := dml.Encode(os.Stdout, cmd)
	if err != nil {
		panic(err)
	}

	// Output: db.users.find({}).limit(2)
}

func ExampleReader() {
	src := strings.NewReader(`db.users.count({}) db.users.find({ age: { $gt: 42 } }, { name: 1 }).limit(2)`)
	for res := range dml.NewReader(src).All() {
		if res.Err != nil {
			panic(res.Err)
		}
		fmt.Printf("#%d %s %s\n", res.Index, res.Command.Verb(), res.Command.CollectionName())
	}

	// Output:
	// #1 count users
	// #2 find users
}
