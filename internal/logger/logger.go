package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a sugared logger; development output unless production is set.
func New(production bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if production {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	return l.Sugar(), nil
}

// Nop is used where no logger was supplied.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
