// Package sweep turns a declarative parameter-sweep document into the set of
// run identities it describes.
//
// A sweep document maps parameter names to rules:
//
//	{"a": {"sweep_type": "constant", "value": 1},
//	 "b": {"sweep_type": "manual",   "value": [1, 2]},
//	 "c": {"sweep_type": "linspace", "value": [0, 1, 5]},
//	 "d": {"sweep_type": "string",   "value": "label"}}
//
// Expansion is the cartesian product of every rule's values, in document
// order with the last parameter varying fastest. Each element is keyed by the
// fingerprint of its canonical params document (see package canonical), so
// the same document always expands to the same run ids.
//
// The same shape is accepted as YAML and as CUE; loaders preserve the
// declaration order of parameters.
package sweep
