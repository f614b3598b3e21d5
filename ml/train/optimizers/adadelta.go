/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package optimizers

import (
	"fmt"
	"math"

	"github.com/redtea-ml/redtea/ml/context"
	"gonum.org/v1/gonum/mat"
)

const (
	// AdadeltaDefaultRho is the default decay of the running averages used by Adadelta.
	AdadeltaDefaultRho = 0.95

	// AdadeltaDefaultEpsilon is the default smoothing term used by Adadelta.
	AdadeltaDefaultEpsilon = 1e-8

	// AdadeltaGradSquares is the name of the Slots accumulator with the running average of
	// the squared gradients.
	AdadeltaGradSquares = "grad_squares"

	// AdadeltaStepSquares is the name of the Slots accumulator with the running average of
	// the squared steps.
	AdadeltaStepSquares = "step_squares"
)

var (
	// ParamAdadeltaRho is the context parameter for the decay of Adadelta running averages.
	ParamAdadeltaRho = "adadelta_rho"

	// ParamAdadeltaEpsilon is the context parameter for the smoothing term of Adadelta.
	ParamAdadeltaEpsilon = "adadelta_epsilon"
)

// Adadelta adapts the step of each parameter using running averages of the squared gradients
// and of the squared steps, so it needs no learning rate. See [Zeiler, 2012](https://arxiv.org/abs/1212.5701).
//
//	Eg = rho * Eg + (1 - rho) * g²
//	delta = sqrt(Ex + epsilon) / sqrt(Eg + epsilon) * g
//	Ex = rho * Ex + (1 - rho) * delta²
//	p -= delta
//
// It returns a configuration object. Once configured call Done to get an Optimizer.
func Adadelta() *AdadeltaConfig {
	return &AdadeltaConfig{
		rho:     AdadeltaDefaultRho,
		epsilon: AdadeltaDefaultEpsilon,
	}
}

// AdadeltaConfig holds the configuration of Adadelta. It implements Rule.
type AdadeltaConfig struct {
	rho, epsilon float64
}

// Rho sets the decay of the running averages, in [0, 1). Default is AdadeltaDefaultRho.
func (c *AdadeltaConfig) Rho(value float64) *AdadeltaConfig {
	checkDecay("adadelta", "rho", value)
	c.rho = value
	return c
}

// Epsilon sets the smoothing term. Default is AdadeltaDefaultEpsilon.
func (c *AdadeltaConfig) Epsilon(value float64) *AdadeltaConfig {
	checkPositive("adadelta", "epsilon", value)
	c.epsilon = value
	return c
}

// FromContext reads ParamAdadeltaRho and ParamAdadeltaEpsilon from the context, if set.
func (c *AdadeltaConfig) FromContext(ctx *context.Context) *AdadeltaConfig {
	return c.
		Rho(context.GetParamOr(ctx, ParamAdadeltaRho, c.rho)).
		Epsilon(context.GetParamOr(ctx, ParamAdadeltaEpsilon, c.epsilon))
}

// Done returns an Optimizer using this configuration.
func (c *AdadeltaConfig) Done() *Optimizer { return New(c) }

// String implements Rule.
func (c *AdadeltaConfig) String() string {
	return fmt.Sprintf("Adadelta(rho=%g, epsilon=%g)", c.rho, c.epsilon)
}

// Step implements Rule.
func (c *AdadeltaConfig) Step(_, grad, step *mat.Dense, slots *Slots) {
	gradSquares, stepSquares := slots.Get(AdadeltaGradSquares), slots.Get(AdadeltaStepSquares)
	rows, _ := grad.Dims()
	for row := range rows {
		g, s := grad.RawRowView(row), step.RawRowView(row)
		eg, ex := gradSquares.RawRowView(row), stepSquares.RawRowView(row)
		for col, gValue := range g {
			eg[col] = c.rho*eg[col] + (1-c.rho)*gValue*gValue
			delta := math.Sqrt(ex[col]+c.epsilon) / math.Sqrt(eg[col]+c.epsilon) * gValue
			ex[col] = c.rho*ex[col] + (1-c.rho)*delta*delta
			s[col] = delta
		}
	}
}
