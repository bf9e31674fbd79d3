// @title linkdrop API
// @version 1.0
// @description 文件上传与临时下载链接服务
// @BasePath /api/v1
// @schemes http https
package main

import "github.com/weiwangfds/linkdrop/cmd"

func main() {
	cmd.Execute()
}
