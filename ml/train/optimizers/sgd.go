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

	"github.com/redtea-ml/redtea/ml/context"
	"gonum.org/v1/gonum/mat"
)

const (
	// SgdDefaultLearningRate is used by StochasticGradientDescent if no learning rate is set.
	SgdDefaultLearningRate = 0.001

	// MomentumDefaultLearningRate is used by Momentum if no learning rate is set.
	MomentumDefaultLearningRate = 0.001

	// MomentumDefaultRho is the default decay of the velocity used by Momentum.
	MomentumDefaultRho = 0.95
)

var (
	// ParamMomentumRho is the context parameter for the decay of the velocity used by Momentum.
	ParamMomentumRho = "momentum_rho"
)

// StochasticGradientDescent (SGD) subtracts the gradient scaled by the learning rate:
// `p -= lr * g`.
//
// It returns a configuration object. Once configured call Done to get an Optimizer.
func StochasticGradientDescent() *SgdConfig {
	return &SgdConfig{learningRate: SgdDefaultLearningRate}
}

// SgdConfig holds the configuration of StochasticGradientDescent. It implements Rule.
type SgdConfig struct {
	learningRate float64
}

// LearningRate sets the learning rate. Default is SgdDefaultLearningRate.
func (c *SgdConfig) LearningRate(value float64) *SgdConfig {
	checkPositive("sgd", "learning rate", value)
	c.learningRate = value
	return c
}

// FromContext reads ParamLearningRate from the context, if set.
func (c *SgdConfig) FromContext(ctx *context.Context) *SgdConfig {
	return c.LearningRate(context.GetParamOr(ctx, ParamLearningRate, c.learningRate))
}

// Done returns an Optimizer using this configuration.
func (c *SgdConfig) Done() *Optimizer { return New(c) }

// String implements Rule.
func (c *SgdConfig) String() string { return fmt.Sprintf("SGD(lr=%g)", c.learningRate) }

// Step implements Rule.
func (c *SgdConfig) Step(_, grad, step *mat.Dense, _ *Slots) {
	step.Scale(c.learningRate, grad)
}

// Momentum keeps a velocity `d` per parameter, a decaying sum of past gradients:
// `d = rho * d - lr * g; p += d`.
//
// It returns a configuration object. Once configured call Done to get an Optimizer.
func Momentum() *MomentumConfig {
	return &MomentumConfig{
		learningRate: MomentumDefaultLearningRate,
		rho:          MomentumDefaultRho,
	}
}

// MomentumConfig holds the configuration of Momentum. It implements Rule.
type MomentumConfig struct {
	learningRate, rho float64
}

// LearningRate sets the learning rate. Default is MomentumDefaultLearningRate.
func (c *MomentumConfig) LearningRate(value float64) *MomentumConfig {
	checkPositive("momentum", "learning rate", value)
	c.learningRate = value
	return c
}

// Rho sets the decay of the velocity, in [0, 1). Default is MomentumDefaultRho.
func (c *MomentumConfig) Rho(value float64) *MomentumConfig {
	checkDecay("momentum", "rho", value)
	c.rho = value
	return c
}

// FromContext reads ParamLearningRate and ParamMomentumRho from the context, if set.
func (c *MomentumConfig) FromContext(ctx *context.Context) *MomentumConfig {
	return c.
		LearningRate(context.GetParamOr(ctx, ParamLearningRate, c.learningRate)).
		Rho(context.GetParamOr(ctx, ParamMomentumRho, c.rho))
}

// Done returns an Optimizer using this configuration.
func (c *MomentumConfig) Done() *Optimizer { return New(c) }

// String implements Rule.
func (c *MomentumConfig) String() string {
	return fmt.Sprintf("Momentum(lr=%g, rho=%g)", c.learningRate, c.rho)
}

// MomentumVelocity is the name of the Slots accumulator with the velocity.
const MomentumVelocity = "velocity"

// Step implements Rule.
func (c *MomentumConfig) Step(_, grad, step *mat.Dense, slots *Slots) {
	velocity := slots.Get(MomentumVelocity)
	velocity.Apply(func(i, j int, d float64) float64 {
		return c.rho*d - c.learningRate*grad.At(i, j)
	}, velocity)
	step.Scale(-1, velocity)
}
