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
	// AdamDefaultLearningRate is used by Adam if no learning rate is set.
	AdamDefaultLearningRate = 0.001

	// AdamFirstMoment is the name of the Slots accumulator with the 1st order moment of the gradients.
	AdamFirstMoment = "1st_moment"

	// AdamSecondMoment is the name of the Slots accumulator with the 2nd order moment of the gradients.
	AdamSecondMoment = "2nd_moment"
)

var (
	// ParamAdamBeta1 is the context parameter for the decay of the 1st order moment.
	ParamAdamBeta1 = "adam_beta1"

	// ParamAdamBeta2 is the context parameter for the decay of the 2nd order moment.
	ParamAdamBeta2 = "adam_beta2"

	// ParamAdamEpsilon is the context parameter for the smoothing term of Adam.
	ParamAdamEpsilon = "adam_epsilon"
)

// Adam optimization is a stochastic gradient descent method that is based on adaptive estimation of first-order and
// second-order moments. According to [Kingma et al., 2014](http://arxiv.org/abs/1412.6980),
// the method is "*computationally efficient, has little memory requirement, invariant to diagonal rescaling of
// gradients, and is well suited for problems that are large in terms of data/parameters*".
//
// The moments are debiased with the number of updates of each parameter (see Slots.Count), so parameters
// added later to the graph start their own count.
//
// It returns a configuration object that can be used to set its parameters. Once configured call Done, and it
// will return an Optimizer.
func Adam() *AdamConfig {
	return &AdamConfig{
		learningRate: AdamDefaultLearningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-8,
	}
}

// AdamConfig holds the configuration for an Adam optimizer, create using Adam(), and once configured
// call Done to create an Adam based Optimizer. It implements Rule.
type AdamConfig struct {
	learningRate float64
	beta1, beta2 float64
	epsilon      float64
}

// LearningRate sets the base learning rate (alpha).
//
// Default is either the value of ParamLearningRate ("learning_rate") in the context, if FromContext is used, or 0.001 if not.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	checkPositive("adam", "learning rate", value)
	c.learningRate = value
	return c
}

// Betas sets the two moving averages constants (default to 0.9 and 0.999, respectively).
// The first is used for the mean of the gradients, and the second for the mean of the squared gradients.
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	checkDecay("adam", "beta1", beta1)
	checkDecay("adam", "beta2", beta2)
	c.beta1 = beta1
	c.beta2 = beta2
	return c
}

// Epsilon used on the denominator as a small constant for stability.
// Default is 1e-8.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	checkPositive("adam", "epsilon", epsilon)
	c.epsilon = epsilon
	return c
}

// FromContext will configure Adam with hyperparameters set in the given context:
// ParamLearningRate, ParamAdamBeta1, ParamAdamBeta2 and ParamAdamEpsilon.
func (c *AdamConfig) FromContext(ctx *context.Context) *AdamConfig {
	return c.
		LearningRate(context.GetParamOr(ctx, ParamLearningRate, c.learningRate)).
		Betas(context.GetParamOr(ctx, ParamAdamBeta1, c.beta1), context.GetParamOr(ctx, ParamAdamBeta2, c.beta2)).
		Epsilon(context.GetParamOr(ctx, ParamAdamEpsilon, c.epsilon))
}

// Done will finish the configuration and construct an Optimizer that actually does the optimization.
func (c *AdamConfig) Done() *Optimizer { return New(c) }

// String implements Rule.
func (c *AdamConfig) String() string {
	return fmt.Sprintf("Adam(lr=%g, beta1=%g, beta2=%g, epsilon=%g)", c.learningRate, c.beta1, c.beta2, c.epsilon)
}

// Step implements Rule.
func (c *AdamConfig) Step(_, grad, step *mat.Dense, slots *Slots) {
	t := float64(slots.Count + 1)
	debiasTermBeta1 := 1 / (1 - math.Pow(c.beta1, t))
	debiasTermBeta2 := 1 / (1 - math.Pow(c.beta2, t))
	moment1, moment2 := slots.Get(AdamFirstMoment), slots.Get(AdamSecondMoment)
	rows, _ := grad.Dims()
	for row := range rows {
		g, s := grad.RawRowView(row), step.RawRowView(row)
		m, v := moment1.RawRowView(row), moment2.RawRowView(row)
		for col, gValue := range g {
			m[col] = c.beta1*m[col] + (1-c.beta1)*gValue
			v[col] = c.beta2*v[col] + (1-c.beta2)*gValue*gValue
			s[col] = c.learningRate * (m[col] * debiasTermBeta1) / (math.Sqrt(v[col]*debiasTermBeta2) + c.epsilon)
		}
	}
}
