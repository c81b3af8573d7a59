// Package compiler provides the CUE rule frontend and the structural
// validation shared by every schema-loading path.
//
// The CUE form is a compact alternative to Schematron XML for
// hand-written rule sets:
//
//	schema: {
//		title: "Order rules"
//		pattern: prices: {
//			rule: [{
//				context: "//item"
//				assert: [{test: "price > 0", message: "price must be positive", role: "error"}]
//			}]
//		}
//	}
//
// Within one rule the asserts precede the reports; each list keeps its
// declaration order. Messages are literal text; the placeholder
// machinery is an XML-loader feature.
//
// Validate checks a compiled model (from either frontend) for
// structural defects: duplicate identifiers, dangling phase or
// diagnostic references, missing contexts and tests. Errors carry
// stable codes.
package compiler
