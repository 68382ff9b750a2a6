// Package mocb simulates a multi-armed, multi-objective contextual bandit that selects arms to
// maximise the Generalized Gini Index of vector rewards.
//
// Package mocb は多目的文脈付きバンディット (MO-LinUCB 系) のシミュレーションを行う。
// 各ラウンドでリッジ回帰により報酬重みを推定し、GGI を最大化する腕の選択確率を
// 射影勾配法または乗算型重み更新で求める。
//
// https://dl.acm.org/doi/pdf/10.1145/3394486.3403374
package mocb

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sw965/mocb/optimizer"
)

var ErrConfig = errors.New("mocb: invalid configuration")

// Config is the run-level configuration. Field names follow the paper: K arms, D objectives,
// M features, T rounds, Lambda ridge regularisation, Eta step size, Iterations ascent steps
// per round.
type Config struct {
	K          int              `validate:"gt=0"`
	D          int              `validate:"gt=0"`
	M          int              `validate:"gt=0"`
	T          int              `validate:"gt=0"`
	Lambda     float64          `validate:"gt=0"`
	Eta        float64          `validate:"gt=0"`
	Iterations int              `validate:"min=1"`
	Scheme     optimizer.Scheme `validate:"scheme"`
	Seed       uint64
}

const (
	defaultK          = 50
	defaultD          = 5
	defaultM          = 10
	defaultT          = 10000
	defaultLambda     = 0.1
	defaultEta        = 1.0
	defaultIterations = 10
	defaultScheme     = optimizer.MultiplicativeWeights
	defaultSeed       = 0
)

func DefaultConfig() Config {
	return Config{
		K:          defaultK,
		D:          defaultD,
		M:          defaultM,
		T:          defaultT,
		Lambda:     defaultLambda,
		Eta:        defaultEta,
		Iterations: defaultIterations,
		Scheme:     defaultScheme,
		Seed:       defaultSeed,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "scheme", func(fl validator.FieldLevel) bool {
		return optimizer.Scheme(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("mocb: validation %q の登録に失敗: %v", tag, err))
	}
}

// Validate reports every offending field at once, wrapped in ErrConfig.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msg := ""
		for i, fe := range verrs {
			if i > 0 {
				msg += ", "
			}
			msg += fmt.Sprintf("%sが不正(%s=%s): %s=%v", fe.Field(), fe.Tag(), fe.Param(), fe.Field(), fe.Value())
		}
		return fmt.Errorf("%w: %s", ErrConfig, msg)
	}
	return fmt.Errorf("%w: %v", ErrConfig, err)
}
