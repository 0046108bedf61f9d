//go:build debug_mem_utils

package memutils

// poisonValue is written over released scratch and freed memory
const poisonValue byte = 0xCD

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}

// DebugPoison fills a region with a recognizable byte pattern so stale reads show up in tests.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugPoison(data []byte) {
	for i := range data {
		data[i] = poisonValue
	}
}
