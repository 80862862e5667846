package planner

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"
)

// 路径与多边形的基础几何工具
// 说明：公共库只提供折线（车道中心线）相关的几何计算，
// 规划路径是带位姿与速度的点列，多边形包含判定也没有现成实现，
// 因此在这里补充对应的工具函数

// normalizeRadian 将角度归一化到(-π, π]
func normalizeRadian(rad float64) float64 {
	for rad > math.Pi {
		rad -= 2 * math.Pi
	}
	for rad <= -math.Pi {
		rad += 2 * math.Pi
	}
	return rad
}

// findNearestIndex 查找路径上距离给定坐标最近的点的索引
func findNearestIndex(path Path, pos geometry.Point) int {
	nearest, minDistance := 0, mathutil.INF
	for i, p := range path.Points {
		d := math.Hypot(p.XYZ.X-pos.X, p.XYZ.Y-pos.Y)
		if d < minDistance {
			minDistance = d
			nearest = i
		}
	}
	return nearest
}

// calcPathLengths 计算路径各点的累计弧长
// 返回：与路径点数等长的弧长数组，首元素为0
func calcPathLengths(path Path) []float64 {
	lengths := make([]float64, len(path.Points))
	for i := 1; i < len(path.Points); i++ {
		prev, cur := path.Points[i-1].XYZ, path.Points[i].XYZ
		lengths[i] = lengths[i-1] + math.Hypot(cur.X-prev.X, cur.Y-prev.Y)
	}
	return lengths
}

// calcSignedArcLength 计算路径上从from到to的带符号弧长
// 说明：以两坐标在路径上的最近点为锚，to在from前方时为正
func calcSignedArcLength(path Path, lengths []float64, from, to geometry.Point) float64 {
	if len(path.Points) == 0 {
		return 0
	}
	iFrom := findNearestIndex(path, from)
	iTo := findNearestIndex(path, to)
	return lengths[iTo] - lengths[iFrom]
}

// calcLateralDeviation 计算坐标相对位姿的横向偏差
// 返回：带符号距离（米），正值表示坐标位于位姿朝向的右侧
func calcLateralDeviation(base Pose, p geometry.Point) float64 {
	dx := p.X - base.XYZ.X
	dy := p.Y - base.XYZ.Y
	// 航向单位向量与相对向量的叉积，左正右负，取反得到右正约定
	return -(math.Cos(base.Yaw)*dy - math.Sin(base.Yaw)*dx)
}

// calcLongitudinalDeviation 计算坐标相对位姿的纵向偏差
// 返回：带符号距离（米），正值表示坐标位于位姿前方
func calcLongitudinalDeviation(base Pose, p geometry.Point) float64 {
	dx := p.X - base.XYZ.X
	dy := p.Y - base.XYZ.Y
	return math.Cos(base.Yaw)*dx + math.Sin(base.Yaw)*dy
}

// pointInPolygon 判断坐标是否位于多边形内部（射线法）
// 参数：polygon-闭合多边形顶点序列（首尾不重复）
func pointInPolygon(polygon []geometry.Point, p geometry.Point) bool {
	if len(polygon) < 3 {
		return false
	}
	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

// pointInAnyPolygon 判断坐标是否位于多边形集合中的任意一个内部
func pointInAnyPolygon(polygons [][]geometry.Point, p geometry.Point) bool {
	for _, polygon := range polygons {
		if pointInPolygon(polygon, p) {
			return true
		}
	}
	return false
}

// poseAlignedBox 以位姿朝向为轴计算点集的有向包围盒
// 功能：将点集变换到位姿坐标系下求轴对齐包围盒，再变换回世界坐标
// 返回：包围盒四个角点（闭合多边形，首尾不重复）
func poseAlignedBox(base Pose, points []geometry.Point) []geometry.Point {
	if len(points) == 0 {
		return nil
	}
	minLon, maxLon := mathutil.INF, -mathutil.INF
	minLat, maxLat := mathutil.INF, -mathutil.INF
	for _, p := range points {
		lon := calcLongitudinalDeviation(base, p)
		lat := calcLateralDeviation(base, p)
		minLon = math.Min(minLon, lon)
		maxLon = math.Max(maxLon, lon)
		minLat = math.Min(minLat, lat)
		maxLat = math.Max(maxLat, lat)
	}
	cos, sin := math.Cos(base.Yaw), math.Sin(base.Yaw)
	toWorld := func(lon, lat float64) geometry.Point {
		// 横向为右正约定，对应世界坐标系下航向右侧的单位向量(sin, -cos)
		return geometry.Point{
			X: base.XYZ.X + cos*lon + sin*lat,
			Y: base.XYZ.Y + sin*lon - cos*lat,
			Z: base.XYZ.Z,
		}
	}
	return []geometry.Point{
		toWorld(minLon, minLat),
		toWorld(maxLon, minLat),
		toWorld(maxLon, maxLat),
		toWorld(minLon, maxLat),
	}
}

// VehicleFootprint 计算位姿处的车辆footprint四角点
func VehicleFootprint(pose Pose, length, width float64) []geometry.Point {
	cos, sin := math.Cos(pose.Yaw), math.Sin(pose.Yaw)
	half := func(lon, lat float64) geometry.Point {
		return geometry.Point{
			X: pose.XYZ.X + cos*lon + sin*lat,
			Y: pose.XYZ.Y + sin*lon - cos*lat,
			Z: pose.XYZ.Z,
		}
	}
	return []geometry.Point{
		half(length/2, -width/2),
		half(length/2, width/2),
		half(-length/2, width/2),
		half(-length/2, -width/2),
	}
}

// resamplePath 将路径按固定间隔重采样
// 说明：保留原路径的首尾点，点上的速度与车道ID取自后继原始点
func resamplePath(path Path, interval float64) Path {
	if len(path.Points) < 2 || interval <= 0 {
		return path
	}
	lengths := calcPathLengths(path)
	total := lengths[len(lengths)-1]
	resampled := Path{Points: []PathPoint{path.Points[0]}}
	for s := interval; s < total; s += interval {
		i := 1
		for i < len(lengths) && lengths[i] < s {
			i++
		}
		prev, cur := path.Points[i-1], path.Points[i]
		k := (s - lengths[i-1]) / (lengths[i] - lengths[i-1])
		resampled.Points = append(resampled.Points, PathPoint{
			Pose: Pose{
				XYZ: geometry.Blend(prev.XYZ, cur.XYZ, k),
				Yaw: prev.Yaw,
			},
			LaneID: cur.LaneID,
			V:      cur.V,
		})
	}
	resampled.Points = append(resampled.Points, path.Points[len(path.Points)-1])
	return resampled
}
