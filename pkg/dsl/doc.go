/*
Package dsl provides a fluent Go builder for test flows.

It lets fixtures, examples and generators define flows in code instead of
JSON or YAML files, with the structural rules of the editor checked at
Build time.

Example usage:

	b := dsl.New("login-smoke", "Login smoke")
	b.Var("base_url", "https://api.example.com")

	b.Add("login").Request("req-login").Go("check")
	b.Add("check").
		Assert(domain.Assertion{Type: "status", Operator: "eq", Expected: "200"}).
		True("profile").
		False("report")
	b.Add("profile").Request("req-profile")
	b.Add("report").Script("console.log(vars)")

	flow, err := b.Build()
	// store.CreateFlow(ctx, flow)
*/
package dsl
