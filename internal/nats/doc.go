// Package nats mirrors game-server events onto NATS and accepts remote
// control requests.
//
// Subjects:
//
//	pzmanager.servers.{id}.log      console line (manager → subscribers)
//	pzmanager.servers.{id}.state    lifecycle transition
//	pzmanager.servers.{id}.roster   parsed player list
//	pzmanager.control.{id}.command  send a console command (request/reply)
//	pzmanager.control.{id}.start    start the server's profile
//	pzmanager.control.{id}.stop     ask the server to quit
//
// Core NATS only, no JetStream. The manager can run an embedded server or
// join an existing one. Watch a server with the nats CLI:
//
//	nats sub "pzmanager.servers.main.>"
//	nats req pzmanager.control.main.command '{"command":"players"}'
package nats
