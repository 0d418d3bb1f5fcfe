// Package faultline groups test failures by root cause.
//
// Quick start:
//
//	c, err := faultline.New(faultline.WithModel("hash"), faultline.WithMinClusterSize(3))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	res, _ := c.Cluster(ctx, failures)
//	for _, cl := range res.Clusters {
//	    fmt.Println(cl.Label, cl.Members)
//	}
//
// Error messages are generalized before embedding, so two failures that
// differ only in literal values ("Missing field 'destination'" and
// "Missing field 'origin'") look the same to the clusterer. A Clusterer is
// safe for concurrent use.
package faultline
