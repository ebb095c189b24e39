package model

import (
	"errors"
	"regexp"

	"github.com/google/uuid"
)

var ErrInvalidSymbol = errors.New("symbol must be upper-case or 0-9")

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

func ValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

var assetNamespace = uuid.MustParse("6f1e3b52-2a7c-4c1e-9d55-3f0b7c1a9e42")

// AssetIDFor derives the asset id a symbol is listed under. The same symbol
// always maps to the same id, so listings can be recreated after a restart.
func AssetIDFor(symbol string) AssetID {
	return AssetID(uuid.NewSHA1(assetNamespace, []byte(symbol)).String())
}
