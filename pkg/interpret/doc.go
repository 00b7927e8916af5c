/*
Package interpret turns loosely structured model output into executable action specs.

The recognizer accepts three encodings and normalizes all of them to domain.ActionSpec:

  - Plain: an object exposing method/url, directly or under one named field.
  - Stepped: a named list of steps, each carrying a description and an action object.
  - Nested: a named object whose sub-fields are action objects.

Replies are decoded into insertion-ordered objects, so actions keep the order the
model wrote them in.

Plain-text action descriptions are matched against the capability catalog. When nothing
executable is found, an optional Repairer asks the model to restate the fragment as a
stepped plan, and keeps only the actions the fragment already named.
*/
package interpret
