package model

import "errors"

var (
	errInvalidNodeID  = errors.New("model: invalid node id")
	errInvalidDriveID = errors.New("model: invalid drive id")
)
