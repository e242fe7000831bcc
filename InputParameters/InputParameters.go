package InputParameters

import (
	"fmt"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/goamr/types"
)

// Parameters obtained from the YAML input file
type RefinementParameters struct {
	Title          string    `json:"Title"`
	MeshFile       string    `json:"MeshFile"` // Gmsh 2.2 coarse mesh, replaces the subdivided box
	Dim            int       `json:"Dim"`
	Subdivisions   []int     `json:"Subdivisions"` // cells per axis of the coarse mesh, one entry fills every axis
	Left           float64   `json:"Left"`
	Right          float64   `json:"Right"`
	Element        string    `json:"Element"`  // Q1 or DGQ0
	Strategy       string    `json:"Strategy"` // fixed-number, fixed-fraction or optimize
	TopFraction    float64   `json:"TopFraction"`
	BottomFraction float64   `json:"BottomFraction"`
	Cycles         int       `json:"Cycles"`
	Workers        int       `json:"Workers"`
	FeatureCenter  []float64 `json:"FeatureCenter"`
	FeatureRadius  float64   `json:"FeatureRadius"`
}

// NewRefinementParameters returns the defaults a parsed file overrides.
func NewRefinementParameters() *RefinementParameters {
	return &RefinementParameters{
		Title:          "Circular feature",
		Dim:            2,
		Subdivisions:   []int{4},
		Left:           0,
		Right:          1,
		Element:        "Q1",
		Strategy:       "fixed-number",
		TopFraction:    0.3,
		BottomFraction: 0.03,
		Cycles:         4,
		Workers:        1,
		FeatureRadius:  0.25,
	}
}

func (ip *RefinementParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// Reps expands Subdivisions to one entry per axis.
func (ip *RefinementParameters) Reps() (reps []int) {
	reps = make([]int, ip.Dim)
	for a := range reps {
		switch {
		case a < len(ip.Subdivisions):
			reps[a] = ip.Subdivisions[a]
		case len(ip.Subdivisions) > 0:
			reps[a] = ip.Subdivisions[len(ip.Subdivisions)-1]
		default:
			reps[a] = 1
		}
	}
	return
}

// Center is the feature centre, the middle of the domain unless given.
func (ip *RefinementParameters) Center() (c []float64) {
	c = make([]float64, ip.Dim)
	for a := range c {
		if a < len(ip.FeatureCenter) {
			c[a] = ip.FeatureCenter[a]
		} else {
			c[a] = (ip.Left + ip.Right) / 2
		}
	}
	return
}

func (ip *RefinementParameters) Validate() error {
	var problems []string
	if ip.Dim < 1 || ip.Dim > 3 {
		problems = append(problems, fmt.Sprintf("Dim %d not in [1,3]", ip.Dim))
	}
	if len(ip.Subdivisions) > ip.Dim && ip.Dim > 0 {
		problems = append(problems, fmt.Sprintf("%d Subdivisions for Dim %d", len(ip.Subdivisions), ip.Dim))
	}
	for _, s := range ip.Subdivisions {
		if s < 1 {
			problems = append(problems, fmt.Sprintf("Subdivisions entry %d below 1", s))
		}
	}
	if ip.Left >= ip.Right {
		problems = append(problems, fmt.Sprintf("Left %g not below Right %g", ip.Left, ip.Right))
	}
	if ip.TopFraction < 0 || ip.BottomFraction < 0 || ip.TopFraction+ip.BottomFraction > 1 {
		problems = append(problems, fmt.Sprintf("fractions %g and %g must be non-negative and sum to at most 1",
			ip.TopFraction, ip.BottomFraction))
	}
	if ip.Cycles < 0 {
		problems = append(problems, fmt.Sprintf("Cycles %d is negative", ip.Cycles))
	}
	if ip.FeatureRadius <= 0 {
		problems = append(problems, fmt.Sprintf("FeatureRadius %g is not positive", ip.FeatureRadius))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid parameters: %s: %w", strings.Join(problems, "; "), types.ErrOutOfRange)
	}
	return nil
}

func (ip *RefinementParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Dimension\n", ip.Dim)
	if len(ip.MeshFile) != 0 {
		fmt.Printf("[%s]\t\t= MeshFile\n", ip.MeshFile)
	} else {
		fmt.Printf("%v\t\t\t= Subdivisions\n", ip.Reps())
	}
	fmt.Printf("[%8.5f,%8.5f]\t= Domain\n", ip.Left, ip.Right)
	fmt.Printf("[%s]\t\t\t= Element\n", ip.Element)
	fmt.Printf("[%s]\t\t= Strategy\n", ip.Strategy)
	fmt.Printf("%8.5f\t\t= TopFraction\n", ip.TopFraction)
	fmt.Printf("%8.5f\t\t= BottomFraction\n", ip.BottomFraction)
	fmt.Printf("[%d]\t\t\t\t= Cycles\n", ip.Cycles)
	fmt.Printf("%v %8.5f\t= Feature centre and radius\n", ip.Center(), ip.FeatureRadius)
}
