package sink

import (
	"context"

	"github.com/pauliax/token-spender-allowances/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Repository interface {
		InsertSnapshots(ctx context.Context, snapshots []model.AllowanceSnapshot) error
	}
)
