// Package pod reinterprets raw foreign bytes as fixed-layout Go values.
// Types must be plain old data: no pointers, slices, strings, maps or interfaces.
package pod

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"dfmem/process"
)

var (
	ErrNotPOD         = errors.New("type contains pointers; not POD-safe")
	ErrZeroSize       = errors.New("size of T is zero")
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrRaggedSlice    = errors.New("buffer length is not a multiple of the element size")
)

func SizeOf[T any]() process.ProcessMemorySize {
	var t T
	return process.ProcessMemorySize(unsafe.Sizeof(t))
}

// Decode copies the first sizeof(T) bytes from data into a new T.
func Decode[T any](data []byte) (T, error) {
	var tmp T

	if hasPointers[T]() {
		return tmp, ErrNotPOD
	}

	size := int(unsafe.Sizeof(tmp))
	if size == 0 {
		return tmp, ErrZeroSize
	}
	if len(data) < size {
		return tmp, fmt.Errorf("%w: have %d, need %d", ErrBufferTooSmall, len(data), size)
	}

	dst := unsafe.Slice((*byte)(unsafe.Pointer(&tmp)), size)
	copy(dst, data[:size])

	return tmp, nil
}

// DecodeSlice splits data into consecutive T values in array order.
func DecodeSlice[T any](data []byte) ([]T, error) {
	if hasPointers[T]() {
		return nil, ErrNotPOD
	}

	size := int(SizeOf[T]())
	if size == 0 {
		return nil, ErrZeroSize
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes, element %d", ErrRaggedSlice, len(data), size)
	}

	count := len(data) / size
	result := make([]T, count)
	if count == 0 {
		return result, nil
	}

	dst := unsafe.Slice((*byte)(unsafe.Pointer(&result[0])), count*size)
	copy(dst, data)
	return result, nil
}

// Encode serializes a POD value T into a raw byte slice using the in-memory layout.
func Encode[T any](v T) []byte {
	size := int(unsafe.Sizeof(v))
	if size == 0 {
		return []byte{}
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(&v)), size)
	out := make([]byte, size)
	copy(out, src)
	return out
}

// IsPOD reports whether T may be used with Decode.
func IsPOD[T any]() bool {
	return !hasPointers[T]()
}

// hasPointers reports whether T (recursively) contains any pointer-like fields.
func hasPointers[T any]() bool {
	return typeHasPointers(reflect.TypeFor[T]())
}

func typeHasPointers(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.String, reflect.Chan:
		return true
	case reflect.Array:
		return typeHasPointers(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if typeHasPointers(rt.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		// bool, ints, uints, floats, complex, etc.
		return false
	}
}
