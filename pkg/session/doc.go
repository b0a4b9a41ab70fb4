/*
Package session implements the SessionStore of the feelflow engine.

The Manager keeps the ordered collection of Sessions and the single active selection.
It owns creation (debounced against double triggers), switching, and every mutation of a
Session, applying each one as an immutable replacement under a per-session lock. Storage
is delegated to a ports.SessionStore (in memory by default, Redis when sessions are shared
between replicas), optionally coordinated through a ports.DistributedLocker.
*/
package session
