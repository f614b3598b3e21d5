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

package graph

import "fmt"

// NodeType identifies the operation performed by a Node.
type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeVariable
	NodeTypeConstant
	NodeTypeAdd
	NodeTypeMul
	NodeTypeMulElt
	NodeTypeRelu
	NodeTypeSigmoid
	NodeTypeTanh
	NodeTypeSoftmax
	NodeTypeLeastSquares
	NodeTypeLogistic
	NodeTypeSplit
	NodeTypeConcat
	NodeTypeDense
	NodeTypeLSTMCell
	NodeTypeComposite
)

var nodeTypeNames = [...]string{
	NodeTypeInvalid:      "Invalid",
	NodeTypeVariable:     "Variable",
	NodeTypeConstant:     "Constant",
	NodeTypeAdd:          "Add",
	NodeTypeMul:          "Mul",
	NodeTypeMulElt:       "MulElt",
	NodeTypeRelu:         "Relu",
	NodeTypeSigmoid:      "Sigmoid",
	NodeTypeTanh:         "Tanh",
	NodeTypeSoftmax:      "Softmax",
	NodeTypeLeastSquares: "LeastSquares",
	NodeTypeLogistic:     "Logistic",
	NodeTypeSplit:        "Split",
	NodeTypeConcat:       "Concat",
	NodeTypeDense:        "Dense",
	NodeTypeLSTMCell:     "LSTMCell",
	NodeTypeComposite:    "Composite",
}

// String implements fmt.Stringer.
func (t NodeType) String() string {
	if t < 0 || int(t) >= len(nodeTypeNames) {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}
