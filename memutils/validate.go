package memutils

// Validatable is anything DebugValidate can check, such as block metadata
type Validatable interface {
	Validate() error
}
