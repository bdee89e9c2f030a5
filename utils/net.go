package utils

import (
	"fmt"
	"net"
)

// GetLocalRealIp 获取本机对外通信使用的 IP 地址
// 通过向外拨号(不实际发包)让内核选择出口地址
func GetLocalRealIp() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close()
	}()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}

	return localAddr.IP, nil
}
