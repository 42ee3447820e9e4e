// Package geo 提供到场判定所需的距离计算
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Point 经纬度坐标(度)
type Point struct {
	Latitude  float64 `json:"latitude" firestore:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude"`
}

// Distance 计算两点间的大圆距离(米),使用 haversine 公式
func Distance(a, b Point) float64 {
	return orbgeo.DistanceHaversine(a.orb(), b.orb())
}

// Within 距离是否在半径内(含边界)
func Within(distance, radius float64) bool {
	return distance <= radius
}

// Remaining 距离半径边界还差多少米,四舍五入
func Remaining(distance, radius float64) int {
	if distance <= radius {
		return 0
	}
	return int(math.Round(distance - radius))
}

// orb 的点是 (经度, 纬度)
func (p Point) orb() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}
