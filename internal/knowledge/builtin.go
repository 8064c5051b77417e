package knowledge

import (
	"regexp"
	"strings"
)

var (
	integerRe = regexp.MustCompile(`^(?:[uc]?int[0-9]*|c(?:short|long|longlong|ushort|ulong|ulonglong|schar|uchar)|byte|Natural|Positive|BiggestU?Int|SomeSignedInt|SomeUnsignedInt|SomeInteger|SomeOrdinal|SomeNumber|auto)$`)
	floatRe   = regexp.MustCompile(`^(?:c?float[0-9]*|cdouble|clongdouble|SomeFloat|BiggestFloat)$`)
	stringRe  = regexp.MustCompile(`^c?string$`)

	// sized numerics and cstring get a variable so nim does not infer int/float
	forcedVariableRe = regexp.MustCompile(`^(?:(?:u?int|float)[0-9]+|cstring)$`)
)

// EnumSentinel is the auxiliary enum every generated unit declares for bare `enum` parameters.
const EnumSentinel = `type MyEnum = enum first = "1st", second, third = "3rd"`

var structural = map[string]bool{
	"Slice": true, "HSlice": true, "seq": true, "set": true, "openArray": true,
	"varargs": true, "tuple": true, "typedesc": true, "static": true,
	"proc": true, "iterator": true,
}

// Scalar returns the literal for a built-in scalar type and the type a
// variable holding it should be declared with. declType is empty when nim
// must infer it, as for type classes such as SomeInteger.
func Scalar(name string) (declType, value string, ok bool) {
	switch {
	case integerRe.MatchString(name):
		return concrete(name), "1", true
	case floatRe.MatchString(name):
		return concrete(name), "1.0", true
	case name == "bool":
		return name, "true", true
	case name == "char":
		return name, "'a'", true
	case stringRe.MatchString(name):
		return name, `"a"`, true
	case name == "void":
		return "", "void", true
	case name == "pointer":
		return name, "nil", true
	case name == "enum":
		return "", "MyEnum.first", true
	case name == "typedesc":
		return "", "int", true
	}
	return "", "", false
}

func concrete(name string) string {
	if strings.HasPrefix(name, "Some") || name == "auto" {
		return ""
	}
	return name
}

// ForcesVariable reports whether values of name must be materialized.
func ForcesVariable(name string) bool {
	return forcedVariableRe.MatchString(name)
}

// IsBuiltin reports whether name is handled without a classification.
func IsBuiltin(name string) bool {
	if structural[name] {
		return true
	}
	_, _, ok := Scalar(name)
	return ok
}
