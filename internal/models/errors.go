package models

import "errors"

// ErrNoArtifact is returned by catalog sources that have nothing to serve yet.
var ErrNoArtifact = errors.New("no catalog artifact available")
