package media

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// SDP 会话描述的构建与解析 - RFC 4566
// 只关心单条 audio m-line, rtpmap 属性按注册表补全

// Description 从 SDP 中提取的媒体要素
type Description struct {
	// 对端媒体地址
	Host string
	// 对端媒体端口
	Port int
	// 负载类型, 保留 m-line 中的声明顺序
	PayloadTypes []uint8
}

// BuildDescription 生成单音频流的会话描述
func BuildDescription(sessionName, host string, port int, payloadTypes []uint8, reg *Registry) ([]byte, error) {
	formats := make([]string, 0, len(payloadTypes))
	attributes := make([]sdp.Attribute, 0, len(payloadTypes))
	for _, pt := range payloadTypes {
		formats = append(formats, strconv.Itoa(int(pt)))

		if codec, ok := reg.Get(pt); ok {
			attributes = append(attributes, sdp.Attribute{
				Key:   "rtpmap",
				Value: fmt.Sprintf("%d %s/%d", pt, codec.Name(), codec.ClockRate()),
			})
		}
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().UnixNano()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: sdp.SessionName(sessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: formats,
				},
				Attributes: attributes,
			},
		},
	}

	return desc.Marshal()
}

// ParseDescription 解析会话描述, 取第一条 audio m-line
func ParseDescription(body []byte) (*Description, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return nil, errors.Wrap(err, "media: parse session description")
	}

	var host string
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		host = desc.ConnectionInformation.Address.Address
	} else {
		host = desc.Origin.UnicastAddress
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}

		// m-line 级连接信息优先于会话级
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			host = md.ConnectionInformation.Address.Address
		}

		payloadTypes := make([]uint8, 0, len(md.MediaName.Formats))
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.Atoi(format)
			if err != nil || pt < 0 || pt > 127 {
				continue
			}
			payloadTypes = append(payloadTypes, uint8(pt))
		}

		return &Description{
			Host:         host,
			Port:         md.MediaName.Port.Value,
			PayloadTypes: payloadTypes,
		}, nil
	}

	return nil, errors.New("media: no audio media description")
}
