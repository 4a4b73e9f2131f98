package stores

import (
	"os"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/Indrakargaurav/codeweave/stores/aws"
	"github.com/Indrakargaurav/codeweave/stores/filesystem"
	"github.com/Indrakargaurav/codeweave/stores/memory"
	"github.com/Indrakargaurav/codeweave/stores/redis"
	"github.com/Indrakargaurav/codeweave/stores/sqlite"
	"github.com/sirupsen/logrus"
)

// GetRoomStore selects the room metadata backend from ROOM_STORE_TYPE.
func GetRoomStore() core.RoomStore {
	storageType := os.Getenv("ROOM_STORE_TYPE")
	var store core.RoomStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "codeweave.db" // Default filename
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use room store")
	return store
}

// GetSnapshotStore selects the durable object store from SNAPSHOT_STORE_TYPE.
func GetSnapshotStore() core.SnapshotStore {
	storageType := os.Getenv("SNAPSHOT_STORE_TYPE")
	var store core.SnapshotStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data" // Default path
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = aws.NewStore(bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use snapshot store")
	return store
}

// GetTTLStore selects the join-code backend from JOINCODE_STORE_TYPE.
func GetTTLStore() core.TTLStore {
	storageType := os.Getenv("JOINCODE_STORE_TYPE")
	var store core.TTLStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "redis":
		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			addr = "localhost:6379"
		}
		storageField["addr"] = addr
		store = redis.NewStore(addr)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use join-code store")
	return store
}
