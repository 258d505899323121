package policy

// BuiltinAuthzRego is the stock authorization policy: it reproduces the
// role-intersection rule in Rego so deployments can start from it and layer
// their own restrictions on top.
const BuiltinAuthzRego = `package entitykit.authz

import rego.v1

default allow := false

allow if {
	"*" in input.allowed_roles
}

allow if {
	some role in input.caller_roles
	role in input.allowed_roles
}

reason := "caller roles do not intersect the action's allowed roles" if {
	not allow
}
`
