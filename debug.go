// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"

	"github.com/524D/mzdecon/internal/cluster"
)

// debugLogClusters prints the clusters in the range given with --debug,
// with their isotopes and assigned fragments
func debugLogClusters(par params, clusters []*cluster.Cluster) {
	if par.debugClusters == `` {
		return
	}
	debugMin, debugMax, _ := parseIntRange(par.debugClusters, 0, len(clusters)-1)
	for i := debugMin; i <= debugMax && i < len(clusters); i++ {
		c := clusters[i]
		fmt.Printf("Cluster:%d ms%d window:%d z:%d rt:%f (%f-%f) mh:%f chi2:%f p:%f identified:%v\n",
			c.Index, c.MSLevel, c.Window, c.Charge, c.ApexRT, c.StartRT, c.EndRT,
			c.MH(), c.ChiSquare, c.PValue, c.Identified)
		for k := 0; k < c.IsotopeCount(); k++ {
			fmt.Printf("  iso %d curve:%d mz:%f area:%f height:%f at %f",
				k, c.Slots[k], c.Mz[k], c.Area[k], c.Height[k], c.HeightRT[k])
			if k > 0 {
				fmt.Printf(" corr:%0.3f", c.Corrs[k-1])
			}
			fmt.Printf("\n")
		}
		for j, f := range c.NormalizedFragments() {
			fmt.Printf("  %d frag curve:%d mz:%f rel:%0.4f corr:%0.3f\n",
				j, f.Curve, f.Mz, f.Intensity, f.Corr)
		}
	}
}
