package ir

// Runtime entry points called by generated code.
//
// Register contract: word arguments in r1, r2, r3, r4 in that order, word
// results in r1. _ThrowError finds the matching catch record, reloads the
// catching frame pointer into r14 and jumps to the catch label with r4
// pointing at the thrower's argument area and r5 holding the stack pointer
// saved in the record. _RestoreCatchStack pops records down to the
// snapshot in r1 and returns a negative r1 if the snapshot is not on the
// catch stack.
const (
	HeapAlloc           Label = "_heapAlloc"
	HeapFree            Label = "_heapFree"
	GetCatchStack       Label = "_GetCatchStack"
	RestoreCatchStackFn Label = "_RestoreCatchStack"
	PushCatchRecord     Label = "_PushCatchRecord"
	ThrowError          Label = "_ThrowError"
	IsKindOfFn          Label = "_IsKindOf"
	IsInstanceOfFn      Label = "_IsInstanceOf"
)

// Runtime error handlers. Each terminates the program.
const (
	ErrNullPointer           Label = "_runtimeErrorNullPointer"
	ErrZeroDivide            Label = "_runtimeErrorZeroDivide"
	ErrBadArrayIndex         Label = "_runtimeErrorBadArrayIndex"
	ErrWrongObject           Label = "_runtimeErrorWrongObject"
	ErrBadObjectSize         Label = "_runtimeErrorBadObjectSize"
	ErrDifferentArraySizes   Label = "_runtimeErrorDifferentArraySizes"
	ErrOverflow              Label = "_runtimeErrorOverflow"
	ErrUninitializedArray    Label = "_runtimeErrorUninitializedArray"
	ErrUninitializedObject   Label = "_runtimeErrorUninitializedObject"
	ErrNonPositiveArrayCount Label = "_runtimeErrorNonPositiveArrayCount"
	ErrBadCatchStack         Label = "_runtimeErrorBadCatchStack"
	ErrNoDefaultCase         Label = "_runtimeErrorNoDefaultCase"
	ErrVersionMismatch       Label = "_runtimeErrorVersionMismatch"
)

// RuntimeLabels lists every runtime label in sorted order. Every package
// imports all of them.
func RuntimeLabels() []Label {
	return []Label{
		GetCatchStack,
		IsInstanceOfFn,
		IsKindOfFn,
		PushCatchRecord,
		RestoreCatchStackFn,
		ThrowError,
		HeapAlloc,
		HeapFree,
		ErrBadArrayIndex,
		ErrBadCatchStack,
		ErrBadObjectSize,
		ErrDifferentArraySizes,
		ErrNoDefaultCase,
		ErrNonPositiveArrayCount,
		ErrNullPointer,
		ErrOverflow,
		ErrUninitializedArray,
		ErrUninitializedObject,
		ErrVersionMismatch,
		ErrWrongObject,
		ErrZeroDivide,
	}
}

// Descriptor magic words
const (
	ClassMagic     int32 = 0x434c4153 // "CLAS"
	InterfaceMagic int32 = 0x494e5446 // "INTF"
	RoutineMagic   int32 = 0x524f5554 // "ROUT"
	VarMagic       int32 = 0x56415220 // "VAR "
)

// DescriptorSizeOffset is the offset of the instance size in a class descriptor.
const DescriptorSizeOffset = 16
