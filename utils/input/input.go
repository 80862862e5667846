package input

import (
	"context"

	"git.fiblab.net/general/common/v2/cache"
	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/protobuf/proto"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/config"
)

// Input 输入数据
// 功能：存储规划器所需的所有输入数据
// 说明：包含地图与场景数据，地图支持从文件或MongoDB加载
type Input struct {
	Map      *mapv2.Map
	Scenario *Scenario
}

// Init 下载数据
// 功能：根据配置初始化并加载所有输入数据
// 参数：config-配置对象，cacheDir-缓存目录
// 返回：加载完成的输入数据指针
// 算法说明：
// 1. 缓存检查：验证缓存目录的有效性
// 2. 数据库连接：如果配置了MongoDB则建立连接
// 3. 地图数据加载：优先从指定文件加载，否则从MongoDB加载（带缓存）
// 4. 场景数据加载：从YAML文件读取逐周期感知帧
func Init(config config.Config, cacheDir string) (res *Input) {
	useCache := preCheckCache(cacheDir)
	if !useCache {
		cacheDir = ""
	}

	var client *mongo.Client
	if config.Input.URI != "" {
		client = mongoutil.NewClient(config.Input.URI)
		defer client.Disconnect(context.Background())
	}

	res = &Input{}

	if config.Input.Map.File != "" {
		var m mapv2.Map
		if err := protoutil.UnmarshalFromFile(&m, config.Input.Map.File); err != nil {
			log.Panicf("failed to load map from file: %v", err)
		}
		res.Map = &m
	} else {
		res.Map = mustLoad[mapv2.Map](client, config.Input.Map, cacheDir)
	}
	log.Infof("map loaded: %d lanes, %d roads", len(res.Map.Lanes), len(res.Map.Roads))

	if config.Input.Scenario == "" {
		log.Panic("no scenario file specified")
	}
	res.Scenario = loadScenario(config.Input.Scenario)
	log.Infof("scenario %s loaded: %d frames", res.Scenario.Name, len(res.Scenario.Frames))
	return
}

// mustLoad 从MongoDB加载protobuf数据（带缓存），失败则panic
func mustLoad[T any, PT interface {
	proto.Message
	*T
}](
	client *mongo.Client,
	inputPath config.InputPath,
	cacheDir string,
) (res PT) {
	coll := mongoutil.GetMongoColl(client, inputPath)
	var downloadFunc func() PT
	if !inputPath.OnlyCache {
		downloadFunc = func() PT {
			pb, errs := mongoutil.DownloadPbFromMongo[T, PT](context.Background(), coll, nil, nil)
			if len(errs) > 0 {
				for _, err := range errs {
					log.Errorf("failed to download: %v", err)
				}
				log.Panicln("failed to download")
			}
			return pb
		}
	}
	log.Infof("start fetching from %s.%s", inputPath.DB, inputPath.Col)
	res, err := cache.LoadWithCache(cacheDir, inputPath, downloadFunc)
	if err != nil {
		log.Panicf("failed to load with cache: %v", err)
	}
	log.Infof("finish fetching from %s.%s", inputPath.DB, inputPath.Col)
	return
}
