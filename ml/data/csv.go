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

package data

import (
	"io"
	"math"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ReadCSV reads comma separated rows of numbers, without a header. All columns but the last
// are the inputs (features), and the last column is the label.
//
// It returns inputs shaped [numRows, numColumns-1] and labels shaped [numRows, 1]. It fails if the
// contents are empty, if rows have different number of fields or if any field is not a number.
func ReadCSV(r io.Reader) (inputs, labels *mat.Dense, err error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(false),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, nil, errors.Wrap(df.Err, "failed to parse CSV")
	}
	numRows, numCols := df.Dims()
	if numRows == 0 || numCols == 0 {
		return nil, nil, errors.New("CSV has no data")
	}
	if numCols < 2 {
		return nil, nil, errors.Errorf("CSV needs at least 2 columns (inputs and label), got %d", numCols)
	}
	inputs = mat.NewDense(numRows, numCols-1, nil)
	labels = mat.NewDense(numRows, 1, nil)
	for row := range numRows {
		for col := range numCols {
			value := df.Elem(row, col).Float()
			if math.IsNaN(value) {
				return nil, nil, errors.Errorf("CSV row %d, column %d: %q is not a number",
					row+1, col+1, df.Elem(row, col).String())
			}
			if col < numCols-1 {
				inputs.Set(row, col, value)
			} else {
				labels.Set(row, 0, value)
			}
		}
	}
	return inputs, labels, nil
}

// LoadCSV reads the CSV file in filePath. See ReadCSV for the format.
func LoadCSV(filePath string) (inputs, labels *mat.Dense, err error) {
	filePath = ReplaceTildeInDir(filePath)
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open CSV file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	inputs, labels, err = ReadCSV(f)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "reading %q", filePath)
	}
	return inputs, labels, nil
}
