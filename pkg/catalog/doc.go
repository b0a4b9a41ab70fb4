/*
Package catalog maps keywords to canned closing reflections.

Each track (feeling, goal) is an ordered list of categories. Lookup lowercases the input,
walks the categories in declared order and answers with a random response from the first
category whose keyword appears anywhere in the text. When nothing matches, the track's
default category answers. Matching is a plain substring test on purpose; there is no
attempt at inferring intent.

The built-in tables live in responses.yaml and are embedded in the binary. Custom tables
can be loaded from YAML or JSON files with the same shape.
*/
package catalog
