package geo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/dispatch-engine/internal/models"
)

// RedisIndex implements DriverIndex using Redis GEO commands plus a meta
// hash per driver for the non-positional fields.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(client *redis.Client, key string) *RedisIndex {
	return &RedisIndex{client: client, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, d models.DriverAvailability) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: d.Loc.Lon,
		Latitude:  d.Loc.Lat,
		Name:      d.DriverID,
	}).Result(); err != nil {
		return err
	}
	services := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		services = append(services, string(s))
	}
	if err := r.client.HSet(ctx, MetaKey(d.DriverID), map[string]interface{}{
		"class":     string(d.Class),
		"services":  strings.Join(services, ","),
		"online":    strconv.FormatBool(d.Online),
		"heartbeat": d.LastHeartbeat.UTC().Format(time.RFC3339),
	}).Err(); err != nil {
		return err
	}
	// available is CAS-guarded by the reservation store; a heartbeat may
	// only initialize it, never overwrite a reservation in flight.
	return r.client.HSetNX(ctx, MetaKey(d.DriverID), "available", strconv.FormatBool(d.Available)).Err()
}

func (r *RedisIndex) Within(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverAvailability, error) {
	res, err := r.client.GeoRadius(ctx, r.key, center.Lon, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverAvailability, 0, len(res))
	for _, g := range res {
		d := models.DriverAvailability{DriverID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lon = g.Longitude
		meta, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		d.Class = models.VehicleClass(meta["class"])
		for _, s := range strings.Split(meta["services"], ",") {
			if s != "" {
				d.Services = append(d.Services, models.OrderType(s))
			}
		}
		d.Online = meta["online"] == "true"
		d.Available = meta["available"] == "true"
		if ts, err := time.Parse(time.RFC3339, meta["heartbeat"]); err == nil {
			d.LastHeartbeat = ts
		}
		out = append(out, d)
	}
	return out, nil
}

// MetaKey is the hash holding a driver's non-positional fields. The
// availability store flips the available field in the same hash.
func MetaKey(id string) string { return "driver:meta:" + id }
