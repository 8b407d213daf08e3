// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import "math/rand"

// FriendlyNames backs the default labels of clients and codes so listings
// read better than bare pks. Collisions across clients are possible and fine.
var FriendlyNames = []string{
	"digital_dynamo",
	"futuristic_fusion",
	"optical_odyssey",
	"radiant_rocket",
	"super_sonic",
	"crystal_cruiser",
	"creative_cyber",
	"efficient_explorer",
	"virtual_venture",
	"nifty_navigator",
	"glorious_galaxy",
	"optimized_operations",
	"astonishing_adventure",
	"elegant_evolution",
	"smooth_symphony",
	"powerful_prodigy",
	"virtual_visionary",
	"sleek_sentinel",
	"energetic_explorer",
	"optimistic_odyssey",
	"fantastic_frontier",
	"digital_dominion",
	"efficient_evolution",
	"virtual_voyager",
	"nimble_navigator",
	"glorious_gateway",
	"astonishing_array",
	"elegant_enterprise",
	"sophisticated_symphony",
	"perfect_prodigy",
	"virtual_victory",
	"speedy_sentinel",
	"energetic_enterprise",
	"optimistic_optimizer",
	"futuristic_fortune",
	"dynamic_dynamo",
	"flawless_fusion",
	"optimal_odyssey",
	"radiant_realm",
	"superior_symphony",
	"crystal_crusader",
	"creative_computing",
	"efficient_exec",
	"virtual_vision",
	"nifty_network",
	"glorious_grid",
	"optimized_optimizer",
	"astonishing_accelerator",
	"elegant_explorer",
}

// RandomFriendlyName picks a label from the pool.
func RandomFriendlyName() string {
	return FriendlyNames[rand.Intn(len(FriendlyNames))]
}
