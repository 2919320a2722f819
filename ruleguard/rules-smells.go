package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two consecutive guards returning the same value are combinable with ||.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	// Nested loops are not always wrong but usually worth extracting.
	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

func handlers(m dsl.Matcher) {
	// Handlers must use the request context so provider calls are cancelled
	// when the client disconnects.
	m.Match(`$svc.Send(context.Background(), $*_)`).
		Report(`use the request context for provider calls so stop and disconnect propagate`)

	// Error wrapping should keep the chain inspectable with errors.Is/As.
	m.Match(`fmt.Errorf($fmt, $err)`).
		Where(m["fmt"].Text.Matches(`".*%v"`) && m["err"].Type.Implements(`error`)).
		Report(`wrap errors with %w, not %v, so errors.Is and errors.As keep working`)
}
