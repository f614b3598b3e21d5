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

package main

import (
	"net/url"
	"path"

	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/ml/data"
	"gonum.org/v1/gonum/mat"
)

// sampleData returns the built-in sample: 5 examples with 2 features and 2 targets each.
func sampleData() (inputs, labels *mat.Dense) {
	inputs = mat.NewDense(5, 2, []float64{
		1, 1,
		2, 1,
		3, 2,
		5, 3,
		6, 0,
	})
	labels = mat.NewDense(5, 2, []float64{
		6, 7.95,
		8, 9.4,
		13, 15.95,
		20, 23.95,
		13, 10.1,
	})
	return
}

// loadData loads the CSV dataset from location, which can be a local file or an http(s) URL, in which case
// it is downloaded into dataDir first (if not there yet) and optionally verified against checkHash.
//
// If location is empty it returns the built-in sample.
func loadData(location, dataDir, checkHash string) (inputs, labels *mat.Dense, err error) {
	if location == "" {
		inputs, labels = sampleData()
		return
	}
	filePath := location
	if data.IsURL(location) {
		u, err := url.Parse(location)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid data URL %q", location)
		}
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			name = "data.csv"
		}
		filePath = path.Join(data.ReplaceTildeInDir(dataDir), name)
		err = data.DownloadIfMissing(location, filePath, checkHash, true)
		if err != nil {
			return nil, nil, err
		}
	}
	return data.LoadCSV(filePath)
}
