package tools

import "reflect"

// reflectMapPointer returns the underlying data pointer of a map
// value, used only to detect schema-graph cycles by identity.
func reflectMapPointer(m map[string]any) uintptr {
	return reflect.ValueOf(m).Pointer()
}
