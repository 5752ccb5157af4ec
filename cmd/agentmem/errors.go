package main

import "fmt"

func errRequiredFlag(name string) error {
	return fmt.Errorf("%s is required", name)
}

func errUnrecognizedEventType(t string) error {
	return fmt.Errorf("unrecognized event type: %s", t)
}
