package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BlendCodePrefix marks lot codes that follow the blend-naming convention.
const BlendCodePrefix = "BLD-"

// LotCodeGenerator produces unique lot codes for a tenant. It is a
// collaborator of the transition engine: the engine asks for a code and never
// cares how it is derived.
type LotCodeGenerator interface {
	NextLotCode(ctx context.Context, tenantID uuid.UUID) (string, error)
	NextBlendCode(ctx context.Context, tenantID uuid.UUID) (string, error)
}

type lotCodeGenerator struct{}

func NewLotCodeGenerator() LotCodeGenerator { return &lotCodeGenerator{} }

func (g *lotCodeGenerator) NextLotCode(ctx context.Context, tenantID uuid.UUID) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LOT-%s-%s", tenantShort(tenantID), suffix), nil
}

func (g *lotCodeGenerator) NextBlendCode(ctx context.Context, tenantID uuid.UUID) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s-%s", BlendCodePrefix, tenantShort(tenantID), suffix), nil
}

func tenantShort(tenantID uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(tenantID.String(), "-", "")[:6])
}

func randomSuffix() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
