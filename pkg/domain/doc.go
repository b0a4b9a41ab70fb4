/*
Package domain contains the core domain models of the feelflow dialogue engine.

It defines the conversation entities (Sessions and their Messages), the named script
positions a session moves through (Path and Step), and the transient state of the nested
cycle check. This package is kept pure and free of I/O, following the same hexagonal split
as the rest of the module: adapters depend on domain, never the other way around.

# Key Entities

  - Message: one immutable turn, authored by the bot or the user.
  - Session: an ordered, append-only transcript plus its position in the script.
  - Step: a closed enumeration of script positions, projected to the classic
    numeric counter through Step.Ordinal.
  - CycleState: the process-wide "do you still feel X?" sub-dialogue state.
*/
package domain
