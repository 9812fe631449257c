package optimizer

import (
	"fmt"
	"sort"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

const (
	clusterAll     = "all"
	clusterUnzoned = "unzoned"
)

// cluster is a group of jobs optimized together. Region is set for
// region-keyed clusters and restricts the candidate pool.
type cluster struct {
	Key         string
	Region      string
	Jobs        []model.Job
	maxPriority int
}

// buildClusters partitions jobs. With clustering disabled every job falls in
// one cluster. Otherwise jobs group by region, region-less jobs by leader
// clustering within the radius, and jobs without region or location end up
// in "unzoned".
func buildClusters(jobs []model.Job, prefs model.Preferences) []cluster {
	if !prefs.GeographicClustering {
		c := cluster{Key: clusterAll, Jobs: append([]model.Job(nil), jobs...)}
		return finishClusters([]cluster{c})
	}

	byRegion := make(map[string]*cluster)
	var loose []model.Job
	var unzoned []model.Job
	for _, j := range jobs {
		switch {
		case j.Region != "":
			c, ok := byRegion[j.Region]
			if !ok {
				c = &cluster{Key: j.Region, Region: j.Region}
				byRegion[j.Region] = c
			}
			c.Jobs = append(c.Jobs, j)
		case j.Location != nil:
			loose = append(loose, j)
		default:
			unzoned = append(unzoned, j)
		}
	}

	out := make([]cluster, 0, len(byRegion)+2)
	for _, c := range byRegion {
		out = append(out, *c)
	}

	sort.Slice(loose, func(a, b int) bool { return loose[a].ID < loose[b].ID })
	radius := prefs.Radius()
	var leaders []model.Coordinate
	var geoClusters []cluster
	for _, j := range loose {
		placed := false
		for i, l := range leaders {
			if geo.Miles(l, *j.Location) <= radius {
				geoClusters[i].Jobs = append(geoClusters[i].Jobs, j)
				placed = true
				break
			}
		}
		if !placed {
			leaders = append(leaders, *j.Location)
			geoClusters = append(geoClusters, cluster{Key: fmt.Sprintf("geo-%d", len(leaders)), Jobs: []model.Job{j}})
		}
	}
	out = append(out, geoClusters...)
	if len(unzoned) > 0 {
		out = append(out, cluster{Key: clusterUnzoned, Jobs: unzoned})
	}
	return finishClusters(out)
}

// finishClusters orders jobs inside each cluster and the clusters themselves.
func finishClusters(cs []cluster) []cluster {
	for i := range cs {
		sortJobs(cs[i].Jobs)
		for _, j := range cs[i].Jobs {
			if r := j.Priority.Rank(); r > cs[i].maxPriority {
				cs[i].maxPriority = r
			}
		}
	}
	sort.SliceStable(cs, func(a, b int) bool {
		if cs[a].maxPriority != cs[b].maxPriority {
			return cs[a].maxPriority > cs[b].maxPriority
		}
		return cs[a].Key < cs[b].Key
	})
	return cs
}

// sortJobs orders by priority descending, scheduled start ascending, ID.
func sortJobs(jobs []model.Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		pa, pb := jobs[a].Priority.Rank(), jobs[b].Priority.Rank()
		if pa != pb {
			return pa > pb
		}
		if !jobs[a].ScheduledStart.Equal(jobs[b].ScheduledStart) {
			return jobs[a].ScheduledStart.Before(jobs[b].ScheduledStart)
		}
		return jobs[a].ID < jobs[b].ID
	})
}
