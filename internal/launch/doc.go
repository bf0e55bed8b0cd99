// Package launch resolves how a dedicated server install is started.
//
// Planner walks the install tree for a known launcher, decides whether to
// run it directly, bypass a script wrapper in favour of the bundled Java
// runtime, or fall back to the system shell, and builds the final argument
// vector. It touches the filesystem only to search, to check for config
// files and to create the mods directory; it never starts a process.
package launch
