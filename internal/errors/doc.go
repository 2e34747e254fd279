// Package errors provides coded, actionable errors for the casta CLI.
//
// Runtime code in pkg/ uses plain sentinel errors. This package is for the
// operator-facing edge: loading casta.json, parsing flags, binding the
// listener. Each code maps to a short message, an explanation and a hint.
//
// # Error Codes
//
//   - E100-E119: configuration
//   - E120-E139: server
//   - E140-E159: command line
//
// # Usage
//
//	err := errors.New("E101").
//	    WithOffset("casta.json", data, syntaxErr.Offset).
//	    Wrap(syntaxErr)
//
//	errors.Fprint(os.Stderr, err)
//	// ERROR E101: Invalid config JSON
//	//
//	//   casta.json:4:3
//	//
//	//        3 │   "server": {
//	//     →  4 │   }
//	//          │   ^
//	//
//	//   Hint: Check for trailing commas and unquoted keys.
package errors
