// Package console interprets the text console of a dedicated game server.
//
// Parser is a per-process, line-oriented state machine. It never fails:
// every line is classified and unknown lines fall through. The caller owns
// serialisation; a Parser must not be fed from two goroutines at once.
//
//	Idle --ready marker--------------------> Idle            (Ready)
//	Idle --roster header "(0)"-------------> Idle            (empty roster)
//	Idle --roster header-------------------> AwaitingRoster
//	AwaitingRoster --"- name"--------------> AwaitingRoster  (collect)
//	AwaitingRoster --blank/header----------> Idle            (roster, if any collected)
//	AwaitingRoster --anything else---------> Idle            (roster so far)
//
// The commands in commands.go build the admin console lines understood by
// Project Zomboid dedicated servers.
package console
