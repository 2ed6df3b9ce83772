// Command cluster-plot renders a scatter plot of projected spike
// features colored by cluster id, for eyeballing a sort run. Input is a
// CSV with x,y,cluster columns (e.g. the first two projected dimensions
// joined against a spike train).
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 127, G: 127, B: 127, A: 255},
}

func main() {
	input := flag.String("input", "", "CSV of x,y,cluster rows")
	output := flag.String("output", "clusters.png", "output PNG path")
	title := flag.String("title", "spike clusters", "plot title")
	flag.Parse()

	if *input == "" {
		log.Fatal("missing -input")
	}

	byCluster, err := loadPoints(*input)
	if err != nil {
		log.Fatalf("load points: %v", err)
	}

	p := plot.New()
	p.Title.Text = *title
	p.X.Label.Text = "pc1"
	p.Y.Label.Text = "pc2"

	i := 0
	for id, pts := range byCluster {
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			log.Fatalf("scatter for cluster %d: %v", id, err)
		}
		scatter.GlyphStyle.Color = palette[i%len(palette)]
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("cluster %d", id), scatter)
		i++
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, *output); err != nil {
		log.Fatalf("save plot: %v", err)
	}
	log.Printf("wrote %s (%d clusters)", *output, len(byCluster))
}

func loadPoints(path string) (map[int]plotter.XYs, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	out := make(map[int]plotter.XYs)
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("row %d: want x,y,cluster", i+1)
		}
		x, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		y, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		id, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out[id] = append(out[id], plotter.XY{X: x, Y: y})
	}
	return out, nil
}
