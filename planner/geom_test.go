package planner

import (
	"math"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
)

func straightPath(n int, step float64) Path {
	path := Path{}
	for i := 0; i < n; i++ {
		path.Points = append(path.Points, PathPoint{
			Pose: Pose{XYZ: geometry.Point{X: float64(i) * step}},
			V:    10,
		})
	}
	return path
}

func TestNormalizeRadian(t *testing.T) {
	assert.InDelta(t, 0, normalizeRadian(2*math.Pi), 1e-9)
	assert.InDelta(t, math.Pi, normalizeRadian(math.Pi), 1e-9)
	assert.InDelta(t, math.Pi, normalizeRadian(-math.Pi), 1e-9)
	assert.InDelta(t, -math.Pi/2, normalizeRadian(3*math.Pi/2), 1e-9)
}

func TestCalcLateralDeviationRightPositive(t *testing.T) {
	// 朝+X的位姿：右侧为-Y方向
	base := Pose{}
	assert.InDelta(t, 2, calcLateralDeviation(base, geometry.Point{X: 5, Y: -2}), 1e-9)
	assert.InDelta(t, -2, calcLateralDeviation(base, geometry.Point{X: 5, Y: 2}), 1e-9)

	// 朝+Y的位姿：右侧为+X方向
	base = Pose{Yaw: math.Pi / 2}
	assert.InDelta(t, 3, calcLateralDeviation(base, geometry.Point{X: 3, Y: 10}), 1e-9)
}

func TestCalcSignedArcLength(t *testing.T) {
	path := straightPath(11, 1) // 0..10米
	lengths := calcPathLengths(path)
	assert.InDelta(t, 10, lengths[10], 1e-9)
	assert.InDelta(t, 7, calcSignedArcLength(path, lengths,
		geometry.Point{X: 2}, geometry.Point{X: 9}), 1e-9)
	assert.InDelta(t, -7, calcSignedArcLength(path, lengths,
		geometry.Point{X: 9}, geometry.Point{X: 2}), 1e-9)
}

func TestPointInPolygon(t *testing.T) {
	square := []geometry.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}
	assert.True(t, pointInPolygon(square, geometry.Point{X: 2, Y: 2}))
	assert.False(t, pointInPolygon(square, geometry.Point{X: 5, Y: 2}))
	assert.False(t, pointInPolygon(square, geometry.Point{X: -1, Y: -1}))
	// 顶点数不足
	assert.False(t, pointInPolygon(square[:2], geometry.Point{X: 2, Y: 2}))

	polygons := [][]geometry.Point{square, {{X: 10, Y: 10}, {X: 12, Y: 10}, {X: 11, Y: 12}}}
	assert.True(t, pointInAnyPolygon(polygons, geometry.Point{X: 11, Y: 10.5}))
	assert.False(t, pointInAnyPolygon(polygons, geometry.Point{X: 7, Y: 7}))
}

func TestPoseAlignedBox(t *testing.T) {
	// 朝+Y的位姿下，点集的包围盒应沿位姿轴展开
	base := Pose{XYZ: geometry.Point{X: 1, Y: 1}, Yaw: math.Pi / 2}
	points := []geometry.Point{{X: 0, Y: 2}, {X: 2, Y: 4}}
	box := poseAlignedBox(base, points)
	assert.Len(t, box, 4)
	for _, p := range points {
		assert.True(t, pointInPolygon(box, geometry.Point{X: p.X + 1e-6, Y: p.Y + 1e-6}) ||
			pointInPolygon(box, geometry.Point{X: p.X - 1e-6, Y: p.Y - 1e-6}))
	}
	// 面积 = 纵向跨度2 × 横向跨度2
	w := math.Hypot(box[1].X-box[0].X, box[1].Y-box[0].Y)
	h := math.Hypot(box[3].X-box[0].X, box[3].Y-box[0].Y)
	assert.InDelta(t, 4, w*h, 1e-6)
}

func TestVehicleFootprint(t *testing.T) {
	fp := VehicleFootprint(Pose{XYZ: geometry.Point{X: 10, Y: 5}}, 4, 2)
	assert.Len(t, fp, 4)
	for _, p := range fp {
		assert.InDelta(t, 2, math.Abs(p.X-10), 1e-9)
		assert.InDelta(t, 1, math.Abs(p.Y-5), 1e-9)
	}
	// 旋转后中心不变，角点到中心距离不变
	fp = VehicleFootprint(Pose{XYZ: geometry.Point{X: 10, Y: 5}, Yaw: 0.7}, 4, 2)
	for _, p := range fp {
		assert.InDelta(t, math.Hypot(2, 1), math.Hypot(p.X-10, p.Y-5), 1e-9)
	}
}

func TestResamplePath(t *testing.T) {
	path := straightPath(11, 1)
	resampled := resamplePath(path, 0.4)
	// 首尾点保留
	assert.Equal(t, path.Points[0].XYZ, resampled.Points[0].XYZ)
	assert.Equal(t, path.Points[10].XYZ, resampled.Points[len(resampled.Points)-1].XYZ)
	// 中间点等间隔
	lengths := calcPathLengths(resampled)
	for i := 1; i < len(resampled.Points)-1; i++ {
		assert.InDelta(t, 0.4, lengths[i]-lengths[i-1], 1e-9)
	}
	// 速度沿用原路径
	for _, p := range resampled.Points {
		assert.InDelta(t, 10, p.V, 1e-9)
	}
}

func TestFindNearestIndex(t *testing.T) {
	path := straightPath(11, 1)
	assert.Equal(t, 3, findNearestIndex(path, geometry.Point{X: 3.2, Y: 1}))
	assert.Equal(t, 0, findNearestIndex(path, geometry.Point{X: -5}))
	assert.Equal(t, 10, findNearestIndex(path, geometry.Point{X: 100}))
}
