/*
Package ports defines the driven ports (interfaces) of the feelflow engine.

These interfaces decouple the dialogue core from external implementations, allowing
the engine to run against different session backends and to be driven deterministically
in tests.

# Key Interfaces

  - SessionStore: persists Sessions and lists them in creation order (e.g. Memory or Redis).
  - DistributedLocker: serialises access to one session across replicas.
  - Clock, IDGenerator: the time and identity collaborators consumed by the core.
*/
package ports
