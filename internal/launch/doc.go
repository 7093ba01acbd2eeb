// Package launch 组合各个检查步骤，构成固定顺序、一次性执行的启动流水线，
// 并在全部检查通过后把控制权移交给被代理程序。
package launch
