package schema

import "fmt"

var errFieldListEmpty = fmt.Errorf("field list is empty")
var errMultiplePK = fmt.Errorf("database already has a primary key")

func errDuplicateName(name string) error {
	return fmt.Errorf("field name already exists: %s", name)
}

func errFieldNotFound(name string) error {
	return fmt.Errorf("invalid field name: %s", name)
}
