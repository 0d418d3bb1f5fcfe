package faultline_test

import (
	"context"
	"fmt"
	"log"

	"github.com/crimson-sun/faultline/pkg/faultline"
)

func Example() {
	c, err := faultline.New(faultline.WithModel("hash"), faultline.WithMinClusterSize(3))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	var failures []faultline.Failure
	for i, field := range []string{"destination", "origin", "check_in", "budget"} {
		failures = append(failures, faultline.Failure{
			CaseID: fmt.Sprintf("missing-%d", i),
			Error:  fmt.Sprintf("Missing field '%s'", field),
		})
	}
	for i, n := range []int{3, 5, 2, 7} {
		failures = append(failures, faultline.Failure{
			CaseID: fmt.Sprintf("hotels-%d", i),
			Error:  fmt.Sprintf("Expected %d hotels, got 0", n),
		})
	}

	res, err := c.Cluster(context.Background(), failures)
	if err != nil {
		log.Fatal(err)
	}
	for _, cl := range res.Clusters {
		fmt.Printf("%d: %v %v\n", cl.Label, cl.ErrorTypes, cl.Members)
	}
	fmt.Println("noise:", len(res.Noise))
	// Output:
	// 0: [Expected [NUMBER] hotels, got [NUMBER]] [hotels-0 hotels-1 hotels-2 hotels-3]
	// 1: [Missing field '[VALUE]'] [missing-0 missing-1 missing-2 missing-3]
	// noise: 0
}

func ExampleGeneralize() {
	fmt.Println(faultline.Generalize("Flight date 2024-03-15 is in the past"))
	// Output: Flight date [DATE] is in the past
}
